package http2

// Setting is a single identifier/value pair from a SETTINGS frame.
type Setting struct {
	ID    SettingID
	Value uint32
}

// Settings holds HTTP/2 settings (RFC 7540 §6.5.2)
type Settings struct {
	HeaderTableSize      uint32
	EnablePush           bool
	MaxConcurrentStreams uint32
	InitialWindowSize    uint32
	MaxFrameSize         uint32
	MaxHeaderListSize    uint32
}

// DefaultSettings returns the RFC 7540 initial values, except that
// MaxConcurrentStreams, which the RFC leaves unlimited, is 100.
func DefaultSettings() Settings {
	return Settings{
		HeaderTableSize:      4096,
		EnablePush:           true,
		MaxConcurrentStreams: 100,
		InitialWindowSize:    DefaultWindowSize,
		MaxFrameSize:         DefaultMaxFrameSize,
		MaxHeaderListSize:    0, // Unlimited
	}
}

// validateSetting checks a single setting value (RFC 7540 §6.5.2).
// Unknown identifiers pass: they must be ignored, not rejected.
func validateSetting(s Setting) error {
	switch s.ID {
	case SettingEnablePush:
		if s.Value > 1 {
			return connError(ErrCodeProtocol, ErrInvalidSettings)
		}
	case SettingInitialWindowSize:
		if s.Value > MaxWindowSize {
			return connError(ErrCodeFlowControl, ErrInvalidSettings)
		}
	case SettingMaxFrameSize:
		if s.Value < MinMaxFrameSize || s.Value > MaxFrameSize {
			return connError(ErrCodeProtocol, ErrInvalidSettings)
		}
	}
	return nil
}

// validateSettings checks every entry before any is applied.
func validateSettings(list []Setting) error {
	for _, s := range list {
		if err := validateSetting(s); err != nil {
			return err
		}
	}
	return nil
}

// apply folds a SETTINGS payload into s, ignoring unknown identifiers.
// Callers must have run validateSettings first.
func (s *Settings) apply(list []Setting) {
	for _, st := range list {
		switch st.ID {
		case SettingHeaderTableSize:
			s.HeaderTableSize = st.Value
		case SettingEnablePush:
			s.EnablePush = st.Value == 1
		case SettingMaxConcurrentStreams:
			s.MaxConcurrentStreams = st.Value
		case SettingInitialWindowSize:
			s.InitialWindowSize = st.Value
		case SettingMaxFrameSize:
			s.MaxFrameSize = st.Value
		case SettingMaxHeaderListSize:
			s.MaxHeaderListSize = st.Value
		}
	}
}

// initialWindowDelta returns the change a SETTINGS payload makes to the
// initial window size, if any. The delta must be applied to every live
// stream's affected window (RFC 7540 §6.9.2).
func (s *Settings) initialWindowDelta(list []Setting) (int32, bool) {
	changed := false
	next := s.InitialWindowSize
	for _, st := range list {
		if st.ID == SettingInitialWindowSize {
			next = st.Value
			changed = true
		}
	}
	if !changed {
		return 0, false
	}
	return int32(next) - int32(s.InitialWindowSize), true
}
