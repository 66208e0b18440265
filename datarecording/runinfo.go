package datarecording

import (
	"os"
	"strings"
	"time"
)

// RunInfoTable is the table that holds the properties of a run.
const RunInfoTable = "run_info"

// RunInfo is one property of a run.
type RunInfo struct {
	Property string
	Value    string
}

const timeFormat = "2006-01-02 15:04:05.000000000"

// RunRecorder records when and how a run happened.
type RunRecorder struct {
	recorder DataRecorder
	entries  []RunInfo
}

// NewRunRecorder creates the run_info table in the recorder.
func NewRunRecorder(recorder DataRecorder) *RunRecorder {
	recorder.CreateTable(RunInfoTable, RunInfo{})

	return &RunRecorder{recorder: recorder}
}

// Start records the start time, the command line and the working directory.
func (r *RunRecorder) Start() {
	r.Set("Start Time", time.Now().Format(timeFormat))
	r.Set("Command", strings.Join(os.Args, " "))

	wd, err := os.Getwd()
	if err == nil {
		r.Set("Working Directory", wd)
	}
}

// Set records a property of the run.
func (r *RunRecorder) Set(property, value string) {
	r.entries = append(r.entries, RunInfo{Property: property, Value: value})
}

// End records the end time and writes all properties.
func (r *RunRecorder) End() {
	r.Set("End Time", time.Now().Format(timeFormat))

	for _, entry := range r.entries {
		r.recorder.InsertData(RunInfoTable, entry)
	}

	r.entries = nil

	r.recorder.Flush()
}
