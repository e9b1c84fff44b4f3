// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command cabtool exercises the manager façade against a single cabinet
// file from the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jcaillon/cabinetmanager/cabfile"
	"github.com/jcaillon/cabinetmanager/manager"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: cabtool <command> <cabinet.cab> [args...]

commands:
  list     <cabinet.cab>
  extract  <cabinet.cab> <rel_path> <dest_path>
  add      <cabinet.cab> <source_path> <rel_path>
  delete   <cabinet.cab> <rel_path>
  move     <cabinet.cab> <old_rel_path> <new_rel_path>
`)
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) < 2 {
		usage()
	}
	cmd, cabPath, rest := args[0], args[1], args[2:]

	m := manager.New()
	m.OnFileProcessed = func(fp manager.FileProcessed) {
		log.Printf("%s %s: processed=%v", fp.Operation, fp.RelPath, fp.Processed)
	}

	var req manager.Request
	switch cmd {
	case "list":
		listCabinet(cabPath)
		return
	case "extract":
		if len(rest) != 2 {
			usage()
		}
		req = manager.Request{CabinetPath: cabPath, Operation: manager.OpExtract, RelPath: rest[0], DestPath: rest[1]}
	case "add":
		if len(rest) != 2 {
			usage()
		}
		req = manager.Request{CabinetPath: cabPath, Operation: manager.OpAdd, SourcePath: rest[0], RelPath: rest[1]}
	case "delete":
		if len(rest) != 1 {
			usage()
		}
		req = manager.Request{CabinetPath: cabPath, Operation: manager.OpDelete, RelPath: rest[0]}
	case "move":
		if len(rest) != 2 {
			usage()
		}
		req = manager.Request{CabinetPath: cabPath, Operation: manager.OpMove, RelPath: rest[0], NewRelPath: rest[1]}
	default:
		usage()
	}

	if err := m.Process(context.Background(), []manager.Request{req}); err != nil {
		log.Fatalf("cabtool: %v", err)
	}
}

func listCabinet(cabPath string) {
	cab, err := cabfile.Open(cabPath)
	if err != nil {
		log.Fatalf("cabtool: %v", err)
	}
	defer cab.Close()
	for _, name := range cab.FileList() {
		fmt.Println(name)
	}
}
