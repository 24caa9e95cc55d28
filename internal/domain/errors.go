package domain

import "errors"

var (
	ErrInvalidID           = errors.New("invalid id")
	ErrInvalidContactName  = errors.New("invalid contact name")
	ErrInvalidStage        = errors.New("invalid stage")
	ErrInvalidActivityType = errors.New("invalid activity type")
	ErrItemNotFound        = errors.New("pipeline item not found")
)
