package installer

import (
	"errors"

	"github.com/JadKHaddad/ptaas-installer/internal/process"
)

// Controller is the caller-facing handle paired with an Installer by New.
// It composes the two phase controllers: Cancel targets whichever phase is
// currently running, trying the venv phase first and falling through to
// the requirements phase once the venv phase reports it has already
// terminated.
type Controller struct {
	id string

	venvCtl *process.Controller
	reqCtl  *process.Controller
}

// Cancel asks the currently-running phase to stop. If the venv phase has
// not started yet it returns the venv phase's process.CancelError
// (CancelErrProcessNotRunning); once the venv phase has terminated, it
// returns whatever Cancel on the requirements phase returns.
func (c *Controller) Cancel() (*process.KillAndWaitError, error) {
	kwErr, err := c.venvCtl.Cancel()
	if err == nil || !isProcessTerminated(err) {
		return kwErr, err
	}
	return c.reqCtl.Cancel()
}

// Close releases both phase controllers. Safe to call multiple times and
// safe to call even if Cancel was never called.
func (c *Controller) Close() error {
	errVenv := c.venvCtl.Close()
	errReq := c.reqCtl.Close()
	if errVenv != nil {
		return errVenv
	}
	return errReq
}

// VenvStatus reports the current status of the venv phase.
func (c *Controller) VenvStatus() process.Status { return c.venvCtl.Status() }

// RequirementsStatus reports the current status of the requirements phase.
func (c *Controller) RequirementsStatus() process.Status { return c.reqCtl.Status() }

func isProcessTerminated(err error) bool {
	var cancelErr *process.CancelError
	return errors.As(err, &cancelErr) && cancelErr.Kind == process.CancelErrProcessTerminated
}
