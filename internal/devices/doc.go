// Package devices talks to the physical endpoints the automation drives.
//
// Three kinds of hardware live here:
//
//   - Relay: a Shelly smart plug channel switched over its local HTTP API.
//     Each device (NAS, satellite receiver) sits behind its own channel.
//   - NAS: the storage box itself. Reachability is probed with a bounded
//     TCP dial on the SSH port; shutdown is delivered as a graceful halt
//     command over SSH, never by cutting power first.
//   - Proxmox: the virtualisation host whose vzdump jobs back up onto the
//     NAS. A running backup pins the NAS on; scheduled runs become
//     auto-generated ON windows.
//
// All clients take a context and enforce short LAN-scale timeouts. An
// unreachable NAS is reported as offline rather than as an error, because
// "off" is a normal state for it.
package devices
