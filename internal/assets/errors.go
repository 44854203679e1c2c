package assets

import "errors"

// Lookup failures. Callers match with errors.Is; messages name the asset.
var (
	ErrStyleNotFound    = errors.New("report style not found")
	ErrTemplateNotFound = errors.New("report template not found")
	ErrInvalidAssetName = errors.New("invalid asset name")    // separators, dots or NUL
	ErrInvalidBasePath  = errors.New("invalid assets directory")
	ErrAssetRead        = errors.New("failed to read asset")
	ErrPathTraversal    = errors.New("asset path escapes the assets directory") // symlink out of BasePath
)
