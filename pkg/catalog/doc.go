/*
Package catalog indexes the squashfs images Burrow produces.

Records are JSON documents in a single bbolt bucket, keyed by image name.
Each record captures the image path, its sha256 digest and size at record
time, and the product/recipe/action context that produced it. The catalog
is an index, not a store: deleting a record leaves the image file in place,
and the digest is a point-in-time capture rather than a live checksum.

The bbolt file lock covers only the database itself. The output and cache
trees the images live in carry no lock at all; concurrent invocations
writing the same output path must be serialized by the operator.
*/
package catalog
