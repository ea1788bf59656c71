package templates

import _ "embed"

//go:embed catalog.yaml
var defaultCatalog []byte
