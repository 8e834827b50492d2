package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/heliosracing/bpms-controller/bms"
)

const (
	readingsFile    = "/var/log/bpms-readings.csv"
	maxReadingLines = 50000
)

// appendReading writes one CSV row for the cycle that just ran:
// wall-clock time, uptime in ms, the eight cell averages in volts, and
// the two actuated discharge masks.
func (c *controller) appendReading(lower, upper uint8) error {
	file, err := os.OpenFile(c.readingsPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	line := fmt.Sprintf("%s, %d", time.Now().Format("2006-01-02 15:04:05"), c.counter.Millis())
	for _, g := range bms.Groups() {
		for _, avg := range c.pack.Averages(g) {
			line += fmt.Sprintf(", %.4f", float64(avg)/10000)
		}
	}
	line += fmt.Sprintf(", 0x%02X, 0x%02X", lower, upper)
	if _, err := file.WriteString(line + "\n"); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// keepLastLines keeps the last `maxLines` lines of the specified file.
func keepLastLines(filePath string, maxLines int) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil
	}
	tmpFile := filepath.Join(os.TempDir(), filepath.Base(filePath)+".tmp")
	err := os.Remove(tmpFile)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	commands := []string{"sh", "-c", fmt.Sprintf("tail -n %d %s > %s", maxLines, filePath, tmpFile)}
	cmd := exec.Command(commands[0], commands[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("err running '%s', %v, %v", strings.Join(commands, " "), string(out), err)
	}
	return os.Rename(tmpFile, filePath)
}
