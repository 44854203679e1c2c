package assets

// AssetLoader reads report assets by bare name. Both methods reject unsafe
// names with ErrInvalidAssetName before touching any storage.
type AssetLoader interface {
	LoadStyle(name string) (string, error)    // name.css, or ErrStyleNotFound
	LoadTemplate(name string) (string, error) // name.html, or ErrTemplateNotFound
}
