package shared

import (
	"fmt"

	"github.com/stockpile-ims/stockpile/internal/platform/httpx"
)

// Sentinels wrap the platform errors so handlers can pass them straight to
// httpx.RespondError.
var (
	ErrNotFound   = fmt.Errorf("masterdata: %w", httpx.ErrNotFound)
	ErrDuplicate  = fmt.Errorf("masterdata: %w", httpx.ErrDuplicate)
	ErrValidation = fmt.Errorf("masterdata: %w", httpx.ErrValidation)
)
