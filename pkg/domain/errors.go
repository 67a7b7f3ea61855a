package domain

import "errors"

// ErrSurfaceMissing is returned when no rendering surface is bound to the workspace.
var ErrSurfaceMissing = errors.New("rendering surface not available")

// ErrNoImage is returned when an annotation command arrives before an image is displayed.
var ErrNoImage = errors.New("no image loaded")

// ErrImageDecode is returned when the rendering engine cannot decode the image.
var ErrImageDecode = errors.New("image decode failed")

// ErrImageNotFound is returned when an image source cannot resolve a reference.
var ErrImageNotFound = errors.New("image not found")

// ErrToolInactive is returned when drawing is attempted while the tool is passive.
var ErrToolInactive = errors.New("annotation tool is not active")

// ErrIndexOutOfRange is returned by record stores for positional access past the end.
var ErrIndexOutOfRange = errors.New("record index out of range")

// ErrSessionNotFound is returned when a session ID cannot be found in the manager.
var ErrSessionNotFound = errors.New("session not found")

// ErrWorkspaceClosed is returned by commands issued after Close.
var ErrWorkspaceClosed = errors.New("workspace closed")
