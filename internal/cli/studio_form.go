package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"

	"yt-clip-studio/internal/model"
)

type studioFieldKind int

const (
	studioFieldString studioFieldKind = iota
	studioFieldInt
	studioFieldSelect
)

type studioFormField struct {
	Key      string
	Label    string
	Help     string
	Kind     studioFieldKind
	Value    string
	Options  []string
	Required bool
}

// studioForm is a field-by-field editor with one shared text input.
type studioForm struct {
	Title  string
	Fields []studioFormField
	Index  int
	Input  textinput.Model
	Error  string
	Saving bool
}

func newJobForm(width int) *studioForm {
	f := &studioForm{
		Title: "New Clip Job",
		Fields: []studioFormField{
			{Key: "url", Label: "YouTube URL", Help: "Link to a single video", Kind: studioFieldString, Required: true},
			{Key: "clip_length", Label: "Clip Length", Help: fmt.Sprintf("Seconds per clip, %d to %d", model.MinClipLength, model.MaxClipLength), Kind: studioFieldInt, Value: strconv.Itoa(model.DefaultClipLength)},
			{Key: "language", Label: "Language", Help: "Caption language", Kind: studioFieldSelect, Value: model.DefaultLanguage, Options: model.Languages},
			{Key: "style", Label: "Style", Help: "Editing rhythm of the generated cuts", Kind: studioFieldSelect, Value: model.DefaultStyle, Options: model.Styles},
		},
	}
	f.Input = newFormInput(width, 2048)
	f.loadFieldIntoInput()
	f.Input.Focus()
	return f
}

// newTextForm edits a single free-text value, used for clip title and caption.
func newTextForm(title, key, label, value string, width int) *studioForm {
	f := &studioForm{
		Title:  title,
		Fields: []studioFormField{{Key: key, Label: label, Kind: studioFieldString, Value: value}},
	}
	f.Input = newFormInput(width, 500)
	f.loadFieldIntoInput()
	f.Input.Focus()
	return f
}

func newFormInput(width, limit int) textinput.Model {
	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = limit
	input.Width = clampInt(width-8, 20, 120)
	return input
}

func (f *studioForm) resize(width int) {
	if f == nil {
		return
	}
	f.Input.Width = clampInt(width-8, 20, 120)
}

func (f *studioForm) currentField() studioFormField {
	if len(f.Fields) == 0 {
		return studioFormField{}
	}
	if f.Index < 0 {
		f.Index = 0
	}
	if f.Index >= len(f.Fields) {
		f.Index = len(f.Fields) - 1
	}
	return f.Fields[f.Index]
}

func (f *studioForm) commitInput() {
	if f == nil || len(f.Fields) == 0 {
		return
	}
	if f.Fields[f.Index].Kind == studioFieldSelect {
		return
	}
	f.Fields[f.Index].Value = strings.TrimSpace(f.Input.Value())
}

func (f *studioForm) loadFieldIntoInput() {
	if f == nil || len(f.Fields) == 0 {
		return
	}
	f.Input.SetValue(f.Fields[f.Index].Value)
	f.Input.CursorEnd()
}

func (f *studioForm) stepSelectOption(step int) {
	if f == nil || len(f.Fields) == 0 {
		return
	}
	curr := f.Fields[f.Index]
	if curr.Kind != studioFieldSelect || len(curr.Options) == 0 {
		return
	}
	pos := 0
	for i, opt := range curr.Options {
		if strings.EqualFold(opt, strings.TrimSpace(curr.Value)) {
			pos = i
			break
		}
	}
	n := len(curr.Options)
	pos = ((pos+step)%n + n) % n
	curr.Value = curr.Options[pos]
	f.Fields[f.Index] = curr
	f.loadFieldIntoInput()
}

func (f *studioForm) value(key string) string {
	for _, field := range f.Fields {
		if field.Key == key {
			return strings.TrimSpace(field.Value)
		}
	}
	return ""
}

func (f *studioForm) toCreateJobRequest() (model.CreateJobRequest, error) {
	if f == nil {
		return model.CreateJobRequest{}, errors.New("internal form error")
	}
	for _, field := range f.Fields {
		v := strings.TrimSpace(field.Value)
		if field.Required && v == "" {
			return model.CreateJobRequest{}, fmt.Errorf("%s is required", strings.ToLower(field.Label))
		}
		if field.Kind == studioFieldInt && v != "" {
			if _, err := strconv.Atoi(v); err != nil {
				return model.CreateJobRequest{}, fmt.Errorf("%s must be a whole number of seconds", strings.ToLower(field.Label))
			}
		}
	}
	clipLength, _ := strconv.Atoi(f.value("clip_length"))
	req, err := model.CreateJobRequest{
		YouTubeURL: f.value("url"),
		ClipLength: clipLength,
		Language:   f.value("language"),
		Style:      f.value("style"),
	}.Normalize()
	if err != nil {
		return model.CreateJobRequest{}, err
	}
	return req, nil
}
