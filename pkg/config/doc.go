// Package config provides the dserver configuration model and loaders.
//
// The primary format is YAML:
//
//	environment: SVT
//	server:
//	  tcpPort: 9578
//	  httpPort: 8000
//	flush:
//	  interval: 5m
//	sources:
//	  - name: accounts
//	    type: CSV
//	  - name: addresses
//	    type: Keyed
//	    tagDelimiter: "="
//
// The legacy INI format is still read when the file does not end in .yaml
// or .yml:
//
//	[Config]
//	Port=9578
//	Environment=SVT
//
//	[Data]
//	Description=accounts:CSV:{'delimiter': ','}
//
// The attribute mapping after the second colon is parsed by a strict
// grammar (see ParseAttributes). It is never evaluated.
//
// The data directory is resolved by ResolveDataDir: an explicit path, then
// $DSERVER_DIR, then ./DATA.
package config
