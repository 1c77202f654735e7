// Package policy evaluates Rego policies against a service manifest.
//
// Policies see the manifest as input:
//
//	{
//	  "operation": "setup",
//	  "source": "services.yml",
//	  "services": [
//	    {"name": "api", "repository": "https://...", "has_repository": true,
//	     "build": {"build_command": "make", "working_directory": "api"}}
//	  ]
//	}
//
// and report problems through a deny set. Elements are either strings or
// objects with "msg", "service" and "severity" keys:
//
//	package shardctl.custom
//
//	deny contains {"msg": "builds must not use sudo", "service": svc.name} if {
//	    some svc in input.services
//	    contains(svc.build.build_command, "sudo")
//	}
//
// File policies default to error severity, which aborts the operation before
// any service is processed. A "# severity: warning" line in the leading
// comment block makes the policy advisory.
package policy
