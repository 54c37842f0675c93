// Package pipeline runs an uploaded CSV file through the anonymization flow.
//
// The flow is a fixed sequence of steps: validate the file name, persist
// the bytes to a run-scoped temporary directory, decode a preview, build
// the external anonymizer client, anonymize, and check that both
// artifacts were written. Each stage is a Step that receives the run
// record and fills it in. The first failing step ends the run with a
// *model.FlowError.
//
// Flow wires the steps from configuration and guarantees that the
// temporary file is removed on every exit path. BatchProcessor runs
// several uploads concurrently using errgroup.
package pipeline
