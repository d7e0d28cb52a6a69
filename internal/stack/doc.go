// Package stack loads stack definitions: the configuration keys a stack
// needs, its data directories, readiness probe defaults and the units that
// make up the dependency graph.
//
// Stacks are written in YAML or HCL. In YAML, readiness targets, commands
// and directories are Go templates rendered with the sprig functions over
// the resolved configuration:
//
//	units:
//	  - id: postgres
//	    readiness:
//	      kind: tcp
//	      target: "localhost:{{ .DB_PORT }}"
//
// In HCL the same fields are expressions with the configuration exposed as
// env:
//
//	unit "postgres" {
//	  readiness {
//	    kind   = "tcp"
//	    target = "localhost:${env.DB_PORT}"
//	  }
//	}
//
// A default stack and its compose file are embedded in the binary.
package stack
