// Package minify compacts an emitted bundle.
package minify

import (
	"errors"
	"fmt"

	"github.com/evanw/esbuild/pkg/api"
)

// Minify returns the minified form of the script src. The name is only used
// in diagnostics. Any esbuild error fails the call; warnings are returned
// alongside the result.
func Minify(name string, src []byte) ([]byte, []string, error) {
	result := api.Transform(string(src), api.TransformOptions{
		Loader:            api.LoaderJS,
		Sourcefile:        name,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		LogLevel:          api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		errs := make([]error, len(result.Errors))
		for i, msg := range result.Errors {
			errs[i] = fmt.Errorf("%s: %s", location(name, msg.Location), msg.Text)
		}
		return nil, nil, errors.Join(errs...)
	}

	var warnings []string
	for _, msg := range result.Warnings {
		warnings = append(warnings, fmt.Sprintf("%s: %s", location(name, msg.Location), msg.Text))
	}

	return result.Code, warnings, nil
}

func location(name string, loc *api.Location) string {
	if loc == nil {
		return name
	}
	return fmt.Sprintf("%s:%d:%d", name, loc.Line, loc.Column)
}
