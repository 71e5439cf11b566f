package filestore

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdc/incentive-engine/claim"
)

var (
	_ claim.FileStore = (*S3)(nil)
	_ claim.FileStore = (*Memory)(nil)
)

// fakeS3 records the requests it receives.
type fakeS3 struct {
	put     *s3.PutObjectInput
	body    []byte
	deleted string
	acl     *s3.PutObjectAclInput
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.put = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deleted = aws.ToString(in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) PutObjectAcl(_ context.Context, in *s3.PutObjectAclInput, _ ...func(*s3.Options)) (*s3.PutObjectAclOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.acl = in
	return &s3.PutObjectAclOutput{}, nil
}

func TestS3_Upload(t *testing.T) {
	fake := &fakeS3{}
	s := newS3(fake, "rdc-proofs", "ap-south-1", "")

	url, err := s.Upload(context.Background(), "claims/abc/123-my proof.pdf", []byte("%PDF"), "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, "https://rdc-proofs.s3.ap-south-1.amazonaws.com/claims/abc/123-my%20proof.pdf", url)
	assert.Equal(t, "rdc-proofs", aws.ToString(fake.put.Bucket))
	assert.Equal(t, "claims/abc/123-my proof.pdf", aws.ToString(fake.put.Key))
	assert.Equal(t, "application/pdf", aws.ToString(fake.put.ContentType))
	assert.Equal(t, int64(4), aws.ToInt64(fake.put.ContentLength))
	assert.Equal(t, []byte("%PDF"), fake.body)
}

func TestS3_CustomEndpointURL(t *testing.T) {
	s := newS3(&fakeS3{}, "rdc-proofs", "ap-south-1", "http://localhost:4566/")
	url, err := s.Upload(context.Background(), "claims/abc/x.pdf", nil, "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4566/rdc-proofs/claims/abc/x.pdf", url)
}

func TestS3_DeleteAndMakePublic(t *testing.T) {
	fake := &fakeS3{}
	s := newS3(fake, "rdc-proofs", "ap-south-1", "")
	ctx := context.Background()

	require.NoError(t, s.MakePublic(ctx, "claims/abc/x.pdf"))
	assert.Equal(t, types.ObjectCannedACLPublicRead, fake.acl.ACL)
	assert.Equal(t, "claims/abc/x.pdf", aws.ToString(fake.acl.Key))

	require.NoError(t, s.Delete(ctx, "claims/abc/x.pdf"))
	assert.Equal(t, "claims/abc/x.pdf", fake.deleted)
}

func TestS3_ErrorsWrapped(t *testing.T) {
	cause := errors.New("access denied")
	s := newS3(&fakeS3{err: cause}, "b", "r", "")
	ctx := context.Background()

	_, err := s.Upload(ctx, "k", nil, "text/plain")
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, s.Delete(ctx, "k"), cause)
	assert.ErrorIs(t, s.MakePublic(ctx, "k"), cause)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	url, err := m.Upload(ctx, "claims/abc/x.pdf", []byte("data"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "memory://claims/abc/x.pdf", url)

	require.NoError(t, m.MakePublic(ctx, "claims/abc/x.pdf"))
	obj, ok := m.Get("claims/abc/x.pdf")
	require.True(t, ok)
	assert.True(t, obj.Public)
	assert.Equal(t, []byte("data"), obj.Data)

	require.NoError(t, m.Delete(ctx, "claims/abc/x.pdf"))
	_, ok = m.Get("claims/abc/x.pdf")
	assert.False(t, ok)
	assert.True(t, claim.IsNotFound(m.MakePublic(ctx, "claims/abc/x.pdf")))
}
