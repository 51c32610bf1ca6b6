// Package connectivity watches whether the portal server is reachable and
// whether the machine is online at all.
//
// Each sample yields a two-bit status, server then network: "11" is healthy,
// "01" means the network is up but the server does not answer, "00" means
// the machine is offline and "10" is an inconsistent reading. The Monitor
// turns the sequence of samples into toasts, reconnect and disconnect
// events, and an adaptive polling interval.
package connectivity
