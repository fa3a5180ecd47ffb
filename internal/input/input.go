// Package input reads arbitration requests from YAML or JSON documents.
package input

import (
	"bytes"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/arbiter/internal/model"
)

var requestValidate = validator.New()

// Load reads a request file. "-" reads standard input. JSON documents are
// accepted since they are valid YAML.
func Load(path string) (*model.Request, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "input: read %s", path)
	}
	req, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "input: %s", path)
	}
	return req, nil
}

// Parse decodes and validates a single request document.
func Parse(data []byte) (*model.Request, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, eris.New("input: empty request")
	}
	var req model.Request
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		return nil, eris.Wrap(err, "input: decode request")
	}
	if err := Validate(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Validate checks a request's required fields.
func Validate(req *model.Request) error {
	if err := requestValidate.Struct(req); err != nil {
		return eris.Wrap(err, "input: invalid request")
	}
	return nil
}
