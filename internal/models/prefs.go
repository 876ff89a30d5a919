package models

// Preference keys accepted by set_pref. Dotted keys address the nested
// voice settings.
const (
	PrefVoiceEnabled = "voice.enabled"
	PrefVoiceAuto    = "voice.auto"
	PrefVoiceName    = "voice.name"
	PrefVoiceSpeed   = "voice.speed"
	PrefTeacherMode  = "teacher_mode"
	PrefAnswerStyle  = "answer_style"
	PrefLang         = "lang"
	PrefMode         = "mode"
	PrefPriority     = "priority"
)

// VoicePrefs controls text-to-speech replies.
type VoicePrefs struct {
	Enabled bool    `bson:"enabled" json:"enabled"`
	Auto    bool    `bson:"auto" json:"auto"`
	Name    string  `bson:"name" json:"name"`
	Speed   float64 `bson:"speed" json:"speed"`
}

// Prefs is the fully-resolved preference set. Every field always carries a
// value; gaps in the stored document are filled from DefaultPrefs.
type Prefs struct {
	Voice       VoicePrefs `bson:"voice" json:"voice"`
	TeacherMode bool       `bson:"teacher_mode" json:"teacherMode"`
	AnswerStyle string     `bson:"answer_style" json:"answerStyle"`
	Lang        string     `bson:"lang" json:"lang"`
	Mode        string     `bson:"mode" json:"mode"`
	Priority    bool       `bson:"priority" json:"priority"`
}

// DefaultPrefs returns the template new and migrated users receive.
func DefaultPrefs() Prefs {
	return Prefs{
		Voice: VoicePrefs{
			Enabled: false,
			Auto:    false,
			Name:    "alloy",
			Speed:   1.0,
		},
		TeacherMode: false,
		AnswerStyle: "steps",
		Lang:        "ru",
		Mode:        "default",
		Priority:    false,
	}
}

// StoredVoicePrefs is the on-disk shape of VoicePrefs; nil means "absent".
type StoredVoicePrefs struct {
	Enabled *bool    `bson:"enabled,omitempty"`
	Auto    *bool    `bson:"auto,omitempty"`
	Name    *string  `bson:"name,omitempty"`
	Speed   *float64 `bson:"speed,omitempty"`
}

// StoredPrefs is the on-disk shape of Prefs; nil means "absent".
type StoredPrefs struct {
	Voice       *StoredVoicePrefs `bson:"voice,omitempty"`
	TeacherMode *bool             `bson:"teacher_mode,omitempty"`
	AnswerStyle *string           `bson:"answer_style,omitempty"`
	Lang        *string           `bson:"lang,omitempty"`
	Mode        *string           `bson:"mode,omitempty"`
	Priority    *bool             `bson:"priority,omitempty"`
}

// Resolve fills every absent field of s from def. complete is false when at
// least one field had to be defaulted, which means the stored document is
// behind the current template and should be rewritten.
func (s *StoredPrefs) Resolve(def Prefs) (p Prefs, complete bool) {
	p = def
	if s == nil {
		return p, false
	}
	complete = true

	if v := s.Voice; v != nil {
		complete = pickBool(&p.Voice.Enabled, v.Enabled) && complete
		complete = pickBool(&p.Voice.Auto, v.Auto) && complete
		complete = pickString(&p.Voice.Name, v.Name) && complete
		if v.Speed != nil {
			p.Voice.Speed = *v.Speed
		} else {
			complete = false
		}
	} else {
		complete = false
	}

	complete = pickBool(&p.TeacherMode, s.TeacherMode) && complete
	complete = pickString(&p.AnswerStyle, s.AnswerStyle) && complete
	complete = pickString(&p.Lang, s.Lang) && complete
	complete = pickString(&p.Mode, s.Mode) && complete
	complete = pickBool(&p.Priority, s.Priority) && complete
	return p, complete
}

func pickBool(dst *bool, src *bool) bool {
	if src == nil {
		return false
	}
	*dst = *src
	return true
}

func pickString(dst *string, src *string) bool {
	if src == nil {
		return false
	}
	*dst = *src
	return true
}

// PrefValue validates a set_pref key/value pair and returns the value in the
// type the document stores. ok is false for unknown keys or mistyped values.
func PrefValue(key string, value interface{}) (interface{}, bool) {
	switch key {
	case PrefVoiceEnabled, PrefVoiceAuto, PrefTeacherMode, PrefPriority:
		b, ok := value.(bool)
		return b, ok
	case PrefVoiceName, PrefAnswerStyle, PrefLang, PrefMode:
		s, ok := value.(string)
		return s, ok
	case PrefVoiceSpeed:
		switch n := value.(type) {
		case float64:
			return n, true
		case float32:
			return float64(n), true
		case int:
			return float64(n), true
		}
	}
	return nil, false
}

// Apply sets key on p in memory; it mirrors what set_pref persists.
func (p *Prefs) Apply(key string, value interface{}) bool {
	v, ok := PrefValue(key, value)
	if !ok {
		return false
	}
	switch key {
	case PrefVoiceEnabled:
		p.Voice.Enabled = v.(bool)
	case PrefVoiceAuto:
		p.Voice.Auto = v.(bool)
	case PrefVoiceName:
		p.Voice.Name = v.(string)
	case PrefVoiceSpeed:
		p.Voice.Speed = v.(float64)
	case PrefTeacherMode:
		p.TeacherMode = v.(bool)
	case PrefAnswerStyle:
		p.AnswerStyle = v.(string)
	case PrefLang:
		p.Lang = v.(string)
	case PrefMode:
		p.Mode = v.(string)
	case PrefPriority:
		p.Priority = v.(bool)
	}
	return true
}
