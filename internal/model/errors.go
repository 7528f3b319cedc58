package model

import "errors"

var (
	ErrPersistRegistration = errors.New("persist registration")
	ErrSessionStore        = errors.New("session store")
)
