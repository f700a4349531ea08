package protocol

import "fmt"

// Gateway→device command tokens.
const (
	CmdOn        = "ON"
	CmdOff       = "OFF"
	CmdLock      = "LOCK"
	CmdUnlock    = "UNLOCK"
	CmdAck       = "ACK"
	CmdPWMAuto   = "PWM_AUTO"
	CmdPWMManual = "PWM_MANUAL"
)

// CmdPWM formats a manual PWM duty command.
func CmdPWM(duty int) string {
	return fmt.Sprintf("PWM:%d", duty)
}
