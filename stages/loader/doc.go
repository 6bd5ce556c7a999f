// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package loader provides an Extractor backed by langchaingo document loaders.
//
// Supported inputs are PDF, DOCX, plain text, Markdown and HTML. The type is
// taken from the source filename extension when one is given and sniffed
// from the content otherwise. Unsupported types, unparseable files and files
// with no extractable text are permanent input errors.
package loader
