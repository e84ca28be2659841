package form

import (
	"fmt"

	"go.uber.org/zap"

	"lims-forms/internal/metadata"
	"lims-forms/internal/section"
)

// Aggregate is the serialized form record: the payload sent to the backend
// create/update endpoints and the value stored as a local draft.
type Aggregate struct {
	Form     string                     `json:"form"`
	RecordID string                     `json:"record_id,omitempty"`
	Fields   map[string]any             `json:"fields"`
	Flags    metadata.Flags             `json:"flags"`
	Sections map[string]section.Section `json:"sections"`
}

// Clone returns a deep copy.
func (a *Aggregate) Clone() *Aggregate {
	out := &Aggregate{
		Form:     a.Form,
		RecordID: a.RecordID,
		Fields:   make(map[string]any, len(a.Fields)),
		Flags:    make(metadata.Flags, len(a.Flags)),
		Sections: make(map[string]section.Section, len(a.Sections)),
	}
	for k, v := range a.Fields {
		out.Fields[k] = v
	}
	for k, v := range a.Flags {
		out.Flags[k] = v
	}
	for k, v := range a.Sections {
		out.Sections[k] = v.Clone()
	}
	return out
}

// Aggregator owns the full set of named sections of one record for the
// duration of an edit session. It is not safe for concurrent use; a Session
// serializes access.
type Aggregator struct {
	def         *metadata.FormDefinition
	recordID    string
	fields      map[string]any
	flags       metadata.Flags
	sections    map[string]section.Section
	wrappers    map[string]*Wrapper
	lastChanged string
	readOnly    bool
	ended       bool
	logger      *zap.Logger
}

// NewAggregator mounts every section of def. Saved data in initial replaces
// a section's template wholesale; sections whose saved data is unusable fall
// back to their defaults and are logged.
func NewAggregator(def *metadata.FormDefinition, initial *Aggregate, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Aggregator{
		def:      def,
		fields:   def.DefaultFields(),
		flags:    def.DefaultFlags(),
		sections: make(map[string]section.Section, len(def.Sections)),
		wrappers: make(map[string]*Wrapper, len(def.Sections)),
		logger:   logger,
	}

	if initial != nil {
		a.recordID = initial.RecordID
		for k, v := range initial.Fields {
			a.fields[k] = v
		}
		for k, v := range initial.Flags {
			if def.HasFlag(k) {
				a.flags[k] = v
			}
		}
		for name, s := range initial.Sections {
			if def.GetSection(name) == nil {
				a.sections[name] = s.Clone()
			}
		}
	}

	for _, tpl := range def.Sections {
		var saved *section.Section
		if initial != nil {
			if s, ok := initial.Sections[tpl.Name]; ok {
				saved = &s
			}
		}
		w, err := Mount(tpl, a.flags, saved, a)
		if err != nil {
			logger.Warn("section data unusable, using defaults",
				zap.String("form", def.Name),
				zap.String("section", tpl.Name),
				zap.Error(err))
		}
		a.wrappers[tpl.Name] = w
		a.sections[tpl.Name] = w.Snapshot()
	}
	return a
}

// Definition returns the form definition.
func (a *Aggregator) Definition() *metadata.FormDefinition {
	return a.def
}

// RecordID returns the backend id of the record, empty for unsaved records.
func (a *Aggregator) RecordID() string {
	return a.recordID
}

// LastChanged returns the name of the most recently changed section.
func (a *Aggregator) LastChanged() string {
	return a.lastChanged
}

// ReadOnly reports whether the record is in view mode.
func (a *Aggregator) ReadOnly() bool {
	return a.readOnly
}

// Ended reports whether the owning session has ended.
func (a *Aggregator) Ended() bool {
	return a.ended
}

// SectionChanged implements SectionListener.
func (a *Aggregator) SectionChanged(name string, s section.Section) {
	a.UpdateSection(name, s)
}

// UpdateSection stores a section snapshot under name. Last write wins and no
// validation happens here; shape problems surface at submission.
func (a *Aggregator) UpdateSection(name string, s section.Section) {
	if a.ended {
		return
	}
	a.sections[name] = s.Clone()
	a.lastChanged = name
}

// ReplaceSection installs a complete section supplied from outside the
// wrapper, e.g. an imported spreadsheet. A fixed section only accepts its
// template rows. The wrapper is remounted on the new data as-is so later edits
// apply to it; shape problems surface at submission.
func (a *Aggregator) ReplaceSection(name string, s section.Section) error {
	if err := a.editable(); err != nil {
		return err
	}
	tpl := a.def.GetSection(name)
	if tpl == nil {
		return fmt.Errorf("%s: %w", name, ErrUnknownSection)
	}
	if tpl.Cardinality == section.Fixed && !tpl.SameRows(s.Data) {
		return fmt.Errorf("%s: %w", name, section.ErrFixedCardinality)
	}
	if old := a.wrappers[name]; old != nil {
		old.Detach()
	}
	a.wrappers[name] = Adopt(tpl, s, a)
	a.UpdateSection(name, s)
	return nil
}

// Section returns the mounted wrapper of a section.
func (a *Aggregator) Section(name string) (*Wrapper, error) {
	if a.ended {
		return nil, ErrSessionEnded
	}
	w, ok := a.wrappers[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownSection)
	}
	return w, nil
}

// SetCellValue edits one cell of a named section.
func (a *Aggregator) SetCellValue(sectionName, rowID, accessorKey, value string) error {
	w, err := a.Section(sectionName)
	if err != nil {
		return err
	}
	return w.SetCellValue(rowID, accessorKey, value)
}

// AddRow adds a row to an open-ended section.
func (a *Aggregator) AddRow(sectionName, afterRowID string) (section.Row, error) {
	w, err := a.Section(sectionName)
	if err != nil {
		return section.Row{}, err
	}
	return w.AddRow(afterRowID)
}

// RemoveRow removes a row from an open-ended section.
func (a *Aggregator) RemoveRow(sectionName, rowID string) error {
	w, err := a.Section(sectionName)
	if err != nil {
		return err
	}
	return w.RemoveRow(rowID)
}

// SetField sets a scalar field. Only declared fields are accepted.
func (a *Aggregator) SetField(name string, value any) error {
	if err := a.editable(); err != nil {
		return err
	}
	if !a.def.HasField(name) {
		return fmt.Errorf("%s: %w", name, ErrUnknownField)
	}
	a.fields[name] = value
	return nil
}

// SetFields sets several scalar fields at once. Every name is checked first;
// an unknown one leaves all fields untouched.
func (a *Aggregator) SetFields(values map[string]any) error {
	if err := a.editable(); err != nil {
		return err
	}
	for name := range values {
		if !a.def.HasField(name) {
			return fmt.Errorf("%s: %w", name, ErrUnknownField)
		}
	}
	for name, v := range values {
		a.fields[name] = v
	}
	return nil
}

// Fields returns a copy of the scalar fields.
func (a *Aggregator) Fields() map[string]any {
	out := make(map[string]any, len(a.fields))
	for k, v := range a.fields {
		out[k] = v
	}
	return out
}

// SetFlag changes a mode flag. Mounted sections re-resolve their columns;
// values already entered are kept.
func (a *Aggregator) SetFlag(name string, value bool) error {
	if err := a.editable(); err != nil {
		return err
	}
	if !a.def.HasFlag(name) {
		return fmt.Errorf("%s: %w", name, ErrUnknownFlag)
	}
	if a.flags[name] == value {
		return nil
	}
	a.flags[name] = value
	for _, tpl := range a.def.Sections {
		if _, err := a.wrappers[tpl.Name].ApplyFlags(a.flags); err != nil {
			return err
		}
	}
	return nil
}

// Flags returns a copy of the flags.
func (a *Aggregator) Flags() metadata.Flags {
	out := make(metadata.Flags, len(a.flags))
	for k, v := range a.flags {
		out[k] = v
	}
	return out
}

// SetReadOnly switches the whole record between view and edit mode.
func (a *Aggregator) SetReadOnly(ro bool) {
	a.readOnly = ro
	for _, w := range a.wrappers {
		w.SetReadOnly(ro)
	}
}

// Serialize returns the complete aggregate. Every section of the form is
// present; sections never touched carry their template.
func (a *Aggregator) Serialize() *Aggregate {
	out := &Aggregate{
		Form:     a.def.Name,
		RecordID: a.recordID,
		Fields:   a.Fields(),
		Flags:    a.Flags(),
		Sections: make(map[string]section.Section, len(a.sections)),
	}
	for name, s := range a.sections {
		out.Sections[name] = s.Clone()
	}
	for _, tpl := range a.def.Sections {
		if _, ok := out.Sections[tpl.Name]; !ok {
			out.Sections[tpl.Name] = tpl.Default(a.flags)
		}
	}
	return out
}

// ApplySubmitResult records the backend id returned by a successful submit.
// Results arriving after the session ended are dropped; the return value
// reports whether the result was applied.
func (a *Aggregator) ApplySubmitResult(recordID string) bool {
	if a.ended {
		return false
	}
	if recordID != "" {
		a.recordID = recordID
	}
	return true
}

// End closes the session: wrappers are detached and later updates ignored.
func (a *Aggregator) End() {
	if a.ended {
		return
	}
	a.ended = true
	for _, w := range a.wrappers {
		w.Detach()
	}
}

func (a *Aggregator) editable() error {
	if a.ended {
		return ErrSessionEnded
	}
	if a.readOnly {
		return ErrReadOnly
	}
	return nil
}
