package ledger

import "errors"

var (
	ErrAssetNotFound         = errors.New("asset not found")
	ErrNotAssetOwner         = errors.New("not asset owner")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrAssetPaused           = errors.New("asset paused")
	ErrAccountFrozen         = errors.New("account frozen")
)
