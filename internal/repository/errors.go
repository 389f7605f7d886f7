package repository

import "errors"

var (
	ErrRowNotFound  = errors.New("row not found")
	ErrInvalidInput = errors.New("invalid input parameters")
)
