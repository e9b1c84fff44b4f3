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

package cabfile

// CompressionType is the folder-level compression type indicator (the low
// nibble of CFFOLDER.typeCompress).
type CompressionType uint16

const (
	// CompressionNone is "store": compressed bytes equal uncompressed bytes.
	CompressionNone CompressionType = 0x0000
	// CompressionMSZip is recognized but has no registered codec in this core.
	CompressionMSZip CompressionType = 0x0001
	// CompressionQuantum is recognized but has no registered codec in this core.
	CompressionQuantum CompressionType = 0x0002
	// CompressionLZX is recognized but has no registered codec in this core.
	CompressionLZX CompressionType = 0x0003
	// CompressionBad marks a folder descriptor as intentionally invalid.
	CompressionBad CompressionType = 0x000F

	compressionTypeMask CompressionType = 0x000F
)

// Compressor turns an uncompressed buffer into a compressed one.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor turns a compressed buffer back into an uncompressed one.
type Decompressor interface {
	Decompress(data []byte, uncompressedLen int) ([]byte, error)
}

// Codec bundles a compressor and decompressor under one compression type.
type Codec interface {
	Compressor
	Decompressor
}

// storeCodec is the identity codec: compressed bytes equal uncompressed bytes.
type storeCodec struct{}

func (storeCodec) Compress(data []byte) ([]byte, error) { return data, nil }

func (storeCodec) Decompress(data []byte, uncompressedLen int) ([]byte, error) {
	return data, nil
}

// codecRegistry maps a compression type (masked to its low nibble) to its
// codec, in place of a switch over every known TypeCompress value. Only
// CompressionNone is registered; the other enum values are recognized by
// name but have no codec, so operations against a folder that declares them
// fail with ErrUnsupportedCompression.
var codecRegistry = map[CompressionType]Codec{
	CompressionNone: storeCodec{},
}

// RegisterCodec installs a codec for the given compression type. It exists
// so the folder API can treat compression as a pluggable capability; this
// core only ever registers CompressionNone itself.
func RegisterCodec(t CompressionType, codec Codec) {
	codecRegistry[t&compressionTypeMask] = codec
}

func lookupCodec(t CompressionType) (Codec, bool) {
	c, ok := codecRegistry[t&compressionTypeMask]
	return c, ok
}
