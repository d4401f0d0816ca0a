//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoETL.
//
// GoETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoETL. If not, see https://www.gnu.org/licenses/.

package location

import (
	"context"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aaronlmathis/weatheretl/awsconf"
	"github.com/aaronlmathis/weatheretl/schema"
)

// Uploader is the subset of the S3 upload manager used by S3Location.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Location writes objects under an S3 prefix.
type S3Location struct {
	Bucket   string
	Prefix   string
	AWS      awsconf.Options
	Uploader Uploader
}

func (s *S3Location) String() string {
	if s.Prefix == "" {
		return "s3://" + s.Bucket
	}
	return "s3://" + s.Bucket + "/" + s.Prefix
}

// Key returns the object key for a name under the prefix.
func (s *S3Location) Key(name string) string {
	if s.Prefix == "" {
		return name
	}
	return path.Join(s.Prefix, name)
}

// NewSink starts a streaming upload. Bytes written to the sink are piped
// into the uploader; Close waits for the upload to finish.
func (s *S3Location) NewSink(ctx context.Context, format Format, columns schema.Schema, runName string) (*Sink, error) {
	if s.Uploader == nil {
		cfg, err := awsconf.Load(ctx, s.AWS)
		if err != nil {
			return nil, fmt.Errorf("s3 location: load aws config: %w", err)
		}
		s.Uploader = manager.NewUploader(awsconf.NewS3Client(cfg, s.AWS))
	}

	key := s.Key(ObjectName(runName, format))
	pr, pw := io.Pipe()
	obj := &s3Object{pw: pw, done: make(chan struct{})}

	go func() {
		defer close(obj.done)
		_, err := s.Uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.Bucket),
			Key:         aws.String(key),
			Body:        pr,
			ContentType: aws.String(format.contentType()),
		})
		if err != nil {
			obj.err = fmt.Errorf("upload s3://%s/%s: %w", s.Bucket, key, err)
		}
		// Unblock writers if the upload stopped early.
		pr.CloseWithError(err)
	}()

	return newSink(obj, "s3://"+s.Bucket+"/"+key, format, columns)
}

type s3Object struct {
	pw     *io.PipeWriter
	done   chan struct{}
	err    error
	once   sync.Once
	result error
}

func (o *s3Object) Write(p []byte) (int, error) {
	return o.pw.Write(p)
}

// Close ends the body and waits for the upload result.
func (o *s3Object) Close() error {
	o.once.Do(func() {
		o.pw.Close()
		<-o.done
		o.result = o.err
	})
	return o.result
}

// Abort fails the body so the uploader gives up without completing the object.
func (o *s3Object) Abort(cause error) error {
	o.once.Do(func() {
		o.pw.CloseWithError(cause)
		<-o.done
		o.result = cause
	})
	return nil
}
