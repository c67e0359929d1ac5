// Package log captures the gateway's protocol traffic as structured
// events.
//
// Protocol capture is separate from operational logging (slog): it
// records every advertisement, decoded frame, attribute transfer,
// connection state change and outbound command as a machine-readable
// record, so a field problem can be replayed offline with the
// xbeacon-log tool.
//
// Events carry a layer (radio, frame, engine), a direction, a category
// and exactly one typed detail variant. The engine produces them; a
// Logger consumes them:
//
//	protocol := log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger, // from log.NewFileLogger("gateway.xlog")
//	)
//
// Files are streams of canonical CBOR records with integer keys, written
// with the .xlog extension and read back with Reader.
package log
