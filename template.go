package aipostblog

// PromptBuilder renders the user prompt for an input and options.
type PromptBuilder func(input string, opts GenerationOptions) string

// TemplateOptions describes the options a template understands.
type TemplateOptions struct {
	SupportedTones   []string `json:"supported_tones"`
	SupportedLengths []string `json:"supported_lengths"`
	DefaultTone      string   `json:"default_tone"`
	DefaultLength    string   `json:"default_length"`
}

// Template is a system prompt plus a prompt builder for one content type.
type Template struct {
	ID           string
	Name         string
	Description  string
	ContentType  ContentType
	Category     string
	SystemPrompt string
	Build        PromptBuilder
	Options      TemplateOptions
}

// Prompt fills unset options with the template defaults and renders the prompt.
func (t Template) Prompt(input string, opts GenerationOptions) string {
	if opts.Tone == "" {
		opts.Tone = t.Options.DefaultTone
	}
	if opts.Length == "" {
		opts.Length = t.Options.DefaultLength
	}
	return t.Build(input, opts)
}

// TemplateResolver maps (content type, template id) to a template. An empty
// id selects the default template of the content type.
type TemplateResolver interface {
	Resolve(contentType ContentType, templateID string) (Template, error)
	ByContentType(contentType ContentType) []Template
}
