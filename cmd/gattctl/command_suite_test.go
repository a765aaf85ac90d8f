package main

import (
	"bytes"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/srg/gattplug/internal/device"
	"github.com/srg/gattplug/internal/testutils"
	"github.com/srg/gattplug/pkg/config"
	"github.com/stretchr/testify/mock"
)

const testDeviceAddress = "AA:BB:CC:DD:EE:FF"

// CommandTestSuite runs commands against the mocked radio of MockRadioSuite.
// Every scan the plug starts immediately "discovers" the suite peripheral.
type CommandTestSuite struct {
	testutils.MockRadioSuite
	origNewRadio func(*config.Config, *logrus.Logger) (device.Radio, error)
}

func (s *CommandTestSuite) SetupTest() {
	s.MockRadioSuite.SetupTest()
	color.NoColor = true

	testutils.Unset(&s.Radio.Mock, "StartScanning")
	s.Radio.On("StartScanning", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			go s.Radio.Discover(s.Peripheral)
		}).
		Return(nil).Maybe()

	if s.origNewRadio == nil {
		s.origNewRadio = newRadio
	}
	newRadio = func(*config.Config, *logrus.Logger) (device.Radio, error) {
		return s.Radio, nil
	}

	readHex, readDirty = false, false
	writeHex, writeNoResponse = false, false
	subscribeHex, subscribeDuration = false, 0
	scanServices, scanName, scanFormat, scanDuration = nil, "", "table", 10*time.Second
	inspectRead = false
}

func (s *CommandTestSuite) TearDownTest() {
	newRadio = s.origNewRadio
	s.origNewRadio = nil
	s.MockRadioSuite.TearDownTest()
}

// ExecuteCommand runs the root command with args plus short test timeouts.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(append(args,
		"--discovery-timeout", s.DiscoveryTimeout.String(),
		"--rw-timeout", s.RWTimeout.String(),
	))
	err := rootCmd.Execute()
	return buf.String(), err
}

// Lines returns the non-empty output lines.
func (s *CommandTestSuite) Lines(out string) []string {
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

