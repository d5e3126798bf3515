// Package protocol implements the line protocol spoken by the motor
// controller: command encoding, feedback parsing and the connection-level
// controller that ties them to a transport.
//
// Outgoing frames are "<Verb><Number>" (Open3, Close1, Stop8) or
// "StatePoll", each followed by the terminator exactly once. Incoming
// buffers carry one or more terminator-delimited status lines such as
// "Motor2 is closed"; each line yields one (index, state) pair and the whole
// buffer is published as a single Batch.
package protocol
