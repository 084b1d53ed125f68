package quiz

import (
	"github.com/invopop/jsonschema"

	"github.com/pavelanni/studynotes/internal/model"
)

// Schema returns the JSON schema of the quiz document requested from
// providers that support constrained output.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	return reflector.Reflect(&model.QuizDocument{})
}
