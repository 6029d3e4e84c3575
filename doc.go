// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

/*
Package dbpf reads and writes DBPF ("Database Packed File") archives, the
container the game keeps its assets in (*.package files).

An archive holds many resources, each addressed by a [ResourceKey] of group,
instance and type IDs. Resources are opaque byte blobs, stored raw or
compressed with RefPack.

# Format

	header   96 bytes at offset 0, magic "DBPF", version 2.0
	data     resource bytes, back to back
	index    one fixed-size record per resource, located by the header

The header records where the index lives, so the index can be anywhere in
the file; archives written by this package put it after the last resource.

# Basic Usage

Creating an archive:

	packer, err := dbpf.Create("mod.package")
	if err != nil {
		log.Fatal(err)
	}
	defer packer.Close()

	key := dbpf.NewResourceKey(group, dbpf.DefaultHash("creature"), typeID)
	if err := packer.WriteResource(key, data, true); err != nil {
		log.Fatal(err)
	}
	if err := packer.Finalize(); err != nil {
		log.Fatal(err)
	}

Reading an archive:

	archive, err := dbpf.Open("mod.package")
	if err != nil {
		log.Fatal(err)
	}
	defer archive.Close()

	for key, entry := range archive.Iterate() {
		fmt.Println(key, entry.UncompressedSize)
	}
	data, ok, err := archive.Lookup(key)

# Packing

[Packer] appends each resource as soon as it is written and keeps the index
in memory. [Packer.Finalize] writes the index and then goes back to rewrite
the header, so archives of any size can be streamed to disk. Writing the
same key twice fails with [ErrDuplicateKey]; nothing from the second write
reaches the file. An archive whose Finalize did not succeed is invalid;
[Create] deletes it on Close.

Compression is a pure function ([Codec.Encode]) and may run on many
goroutines. The packer itself must be driven from one goroutine.

# Limitations

  - Only version 2.0 archives with index version 3 are supported
  - RefPack is the only compression scheme
  - Archives are limited to 4GB
  - Deleted-entry "holes" are never written and are ignored on read
*/
package dbpf
