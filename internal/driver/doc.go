// Package driver defines the hardware driver contracts consumed by the mode
// state machine and the audio pipelines. The real codec/camera register and
// DMA bring-up lives outside this module; the runtime only depends on these
// interfaces. Simulated implementations are provided for tests and for the
// sim run mode of the device binary.
package driver
