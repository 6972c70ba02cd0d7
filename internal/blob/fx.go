package blob

import (
	"go.uber.org/fx"

	"github.com/teacurran/planning-poker/internal/config"
)

var Module = fx.Module("blob",
	fx.Provide(NewUploaderFx),
)

// NewUploaderFx creates the artifact store for fx.
func NewUploaderFx(cfg *config.Config) (Uploader, error) {
	return NewFSUploader(cfg.Export.Dir, cfg.Export.BaseURL)
}
