package selve

// eType labels as the gateway's own UI presents them. Codes 0-7 are motor
// drives, 16-21 are switching actuators; the gaps are reserved.
var eTypeLabels = map[int]string{
	0:  "Inside Blind",
	1:  "Outside Blind",
	2:  "Inside Awning",
	3:  "Outside Awning",
	4:  "Business Awning",
	5:  "Roller Shutter",
	6:  "Window",
	7:  "Folding Shutter",
	16: "Night Light",
	17: "Dusk Light",
	18: "Heating",
	19: "Cooling",
	20: "Switch",
	21: "Sun Switch",
}

// ETypeLabel returns the human-readable label for a Commeo eType code.
// Unassigned codes inside the motor and switch ranges are labelled as such;
// everything else is "Unknown".
func ETypeLabel(code int) string {
	if label, ok := eTypeLabels[code]; ok {
		return label
	}
	switch {
	case code >= 8 && code <= 15:
		return "Unknown Motor Type"
	case code >= 22 && code <= 31:
		return "Unknown Switch Type"
	default:
		return "Unknown"
	}
}

// IsMotorEType reports whether the eType code denotes a motor drive
// (positional device) rather than a switching actuator.
func IsMotorEType(code int) bool {
	return code >= 0 && code <= 7
}
