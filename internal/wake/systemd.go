package wake

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const timerUnit = "carebot-wake"

type systemdHook struct{}

// Systemd arms a transient systemd timer with WakeSystem=true so a suspended
// host resumes in time for the next scheduled fire. Requires systemd-run on
// PATH and an RTC capable of waking the machine.
func Systemd() Hook { return systemdHook{} }

func (systemdHook) ScheduleWake(ctx context.Context, at time.Time, meta string) error {
	// Replace any timer armed by a previous pass. stop fails when no timer
	// exists, which is the common case.
	_ = exec.CommandContext(ctx, "systemctl", "stop", timerUnit+".timer").Run()

	cmd := exec.CommandContext(ctx, "systemd-run",
		"--unit="+timerUnit,
		"--description=carebot wake: "+meta,
		"--timer-property=WakeSystem=true",
		"--timer-property=AccuracySec=1s",
		"--on-calendar="+at.UTC().Format("2006-01-02 15:04:05 UTC"),
		"true",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemd-run: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
