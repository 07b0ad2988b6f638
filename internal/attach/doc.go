// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package attach prepares files and library assets for a send.
//
// Uploads are checked against an extension allow-list and a size limit, read
// in full and encoded as a data URL whose base64 payload is what the bridge
// receives. Images keep the data URL as a preview. Asset references carry a
// library path instead of data and get a thumbnail preview from an
// AssetSource, such as the MinIO-backed MinioSource.
//
// Preparation is per file: AddFiles returns the accepted attachments and a
// Rejection for each file that failed, so one bad file never blocks the rest.
package attach
