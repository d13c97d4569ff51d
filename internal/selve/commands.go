package selve

import "slices"

// FunctionSendGenericCmd is the XC_FNC value for device commands.
const FunctionSendGenericCmd = "SendGenericCmd"

// Command vocabularies as the gateway documents them. They are advisory:
// the gateway is the final arbiter of what a device accepts, so unknown
// names are warned about, never rejected.
var (
	CommeoSwitchCommands = []string{"on", "off", "toggle"}

	// "moveTo" expects a companion value (target position).
	CommeoMotorCommands = []string{
		"moveUp", "moveDown", "stop", "moveTo", "stepUp", "stepDown",
		"movetoP1", "movetoP2", "auto", "manu", "saveP1", "saveP2",
	}

	IveoSwitchCommands = []string{"on", "off"}

	IveoMotorCommands = []string{
		"moveUp", "moveDown", "stop", "moveToP1", "moveToP2",
		"saveP1", "saveP2", "delete", "configP1", "configP2",
	}
)

// Envelope is the JSON body POSTed to /cmd for a generic device command.
type Envelope struct {
	Function string       `json:"XC_FNC"`
	ID       string       `json:"id"`
	Data     EnvelopeData `json:"data"`
}

// EnvelopeData carries the command name and its optional companion value.
type EnvelopeData struct {
	Cmd   string `json:"cmd"`
	Value *int   `json:"value,omitempty"`
}

// NewCommand builds the SendGenericCmd envelope for a device sid. A nil
// value omits the field entirely, which the gateway requires for commands
// that take no parameter.
func NewCommand(sid, cmd string, value *int) Envelope {
	return Envelope{
		Function: FunctionSendGenericCmd,
		ID:       sid,
		Data: EnvelopeData{
			Cmd:   cmd,
			Value: value,
		},
	}
}

// CommandsFor returns the advisory vocabulary for a device, or nil when the
// device takes no commands (sensors).
func CommandsFor(d Device) []string {
	switch dev := d.(type) {
	case *CommeoReceiver:
		if dev.IsMotor() {
			return CommeoMotorCommands
		}
		return CommeoSwitchCommands
	case *CommeoSensor:
		return nil
	case *IveoReceiver:
		return IveoMotorCommands
	case *DeviceGroup:
		return groupCommands(dev)
	default:
		return nil
	}
}

func groupCommands(g *DeviceGroup) []string {
	if g.System == SystemIveo {
		if g.Kind == GroupSwitch {
			return IveoSwitchCommands
		}
		return IveoMotorCommands
	}
	if g.Kind == GroupSwitch {
		return CommeoSwitchCommands
	}
	return CommeoMotorCommands
}

// KnownCommand reports whether cmd appears in the device's advisory
// vocabulary.
func KnownCommand(d Device, cmd string) bool {
	return slices.Contains(CommandsFor(d), cmd)
}
