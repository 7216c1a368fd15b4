package cli

import (
	"io"
)

// render writes data in the requested format. Text output is delegated to
// text so each command keeps its own human layout.
func render(w io.Writer, format string, data interface{}, text func(io.Writer) error) error {
	switch format {
	case OutputJSON:
		return WriteJSONSuccess(w, data)
	case OutputYAML:
		return WriteYAML(w, data)
	default:
		return text(w)
	}
}

// renderFailure reports err in the envelope for json output. The error is
// returned either way so the exit code reflects the failure.
func renderFailure(w io.Writer, format string, err error) error {
	if format == OutputJSON {
		_ = WriteJSONFromError(w, err)
	}
	return err
}
