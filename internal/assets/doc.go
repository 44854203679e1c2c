// Package assets provides the stylesheets and HTML templates used to render
// compilation failure reports.
//
// # Loader Architecture
//
//	AssetLoader (interface)
//	    │
//	    ├── EmbeddedLoader    - loads from go:embed filesystem (built-in assets)
//	    ├── FilesystemLoader  - loads from a custom directory on disk
//	    └── AssetResolver     - combines both with custom-first fallback
//
// AssetResolver is what the report renderer uses. It tries the custom
// FilesystemLoader first and falls back to EmbeddedLoader when an asset is
// not found, so a directory may override only some assets.
//
// # Directory Structure
//
//	{basePath}/
//	├── styles/
//	│   └── {name}.css           # Report stylesheet (e.g., print.css)
//	└── templates/
//	    └── {name}.html          # Report page template (e.g., report.html)
//
// # Security
//
// Asset names are validated to prevent path traversal attacks.
// FilesystemLoader resolves symlinks and verifies paths stay within basePath.
package assets
