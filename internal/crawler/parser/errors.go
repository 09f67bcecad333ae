package parser

import "errors"

// ErrLayoutChanged means the page no longer has the structure the extractor expects.
var ErrLayoutChanged = errors.New("page layout changed")
