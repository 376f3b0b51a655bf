package cli

import (
	"encoding/json"

	"github.com/joeycumines/loopviz"
	"github.com/spf13/cobra"
)

// NewCatalogCommand returns the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   `catalog`,
		Short: `List the event templates`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			e, err := newEnv(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := e.close(); err == nil && closeErr != nil {
					err = closeErr
				}
			}()

			catalog := e.viz.Catalog()
			if rootOpts.Format == FormatJSON {
				enc := json.NewEncoder(e.out)
				enc.SetIndent(``, `  `)
				return enc.Encode(struct {
					Templates []loopviz.Template `json:"templates"`
					Initial   []string           `json:"initial"`
				}{catalog.Templates(), catalog.Initial()})
			}
			return e.renderer.Catalog(e.out, catalog)
		},
	}
}
