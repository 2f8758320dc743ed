package session

// FlashMode is the camera flash setting while scanning
type FlashMode int

const (
	FlashOff FlashMode = iota
	FlashOn
	FlashAuto
)

func (f FlashMode) String() string {
	switch f {
	case FlashOn:
		return "on"
	case FlashAuto:
		return "auto"
	default:
		return "off"
	}
}

func (f FlashMode) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Next cycles off, on, auto, off
func (f FlashMode) Next() FlashMode {
	switch f {
	case FlashOff:
		return FlashOn
	case FlashOn:
		return FlashAuto
	default:
		return FlashOff
	}
}
