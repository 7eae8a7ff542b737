package transcode

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert/types"
)

var defaultProfile = Profile{
	QualityLevel: 8,
	MaxBitrate:   8_000_000,
	Width:        1920,
	Height:       1080,
	AudioBitrate: 128_000,
	SampleRate:   48_000,
}

type fakeAPI struct {
	created *mediaconvert.CreateJobInput
	job     *types.Job
	err     error
}

func (f *fakeAPI) CreateJob(_ context.Context, in *mediaconvert.CreateJobInput, _ ...func(*mediaconvert.Options)) (*mediaconvert.CreateJobOutput, error) {
	f.created = in
	if f.err != nil {
		return nil, f.err
	}
	return &mediaconvert.CreateJobOutput{Job: f.job}, nil
}

func (f *fakeAPI) GetJob(_ context.Context, in *mediaconvert.GetJobInput, _ ...func(*mediaconvert.Options)) (*mediaconvert.GetJobOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &mediaconvert.GetJobOutput{Job: f.job}, nil
}

func TestBuildJobInputProfile(t *testing.T) {
	in := BuildJobInput("arn:role", "", defaultProfile, JobSpec{
		InputURI:       "s3://staging/uploads/1/a.mp4",
		DestinationURI: "s3://staging/compressed/",
		UserMetadata:   map[string]string{"OriginalFileName": "a.mp4"},
	})

	if aws.ToString(in.Role) != "arn:role" || in.Queue != nil {
		t.Fatalf("unexpected role/queue: %v %v", in.Role, in.Queue)
	}
	if in.UserMetadata["OriginalFileName"] != "a.mp4" {
		t.Fatalf("user metadata not carried: %v", in.UserMetadata)
	}
	if got := aws.ToString(in.Settings.Inputs[0].FileInput); got != "s3://staging/uploads/1/a.mp4" {
		t.Fatalf("unexpected input %q", got)
	}

	group := in.Settings.OutputGroups[0]
	if got := aws.ToString(group.OutputGroupSettings.FileGroupSettings.Destination); got != "s3://staging/compressed/" {
		t.Fatalf("unexpected destination %q", got)
	}

	out := group.Outputs[0]
	video := out.VideoDescription
	if aws.ToInt32(video.Width) < MinWidth || aws.ToInt32(video.Height) < MinHeight {
		t.Fatalf("output below 720p: %dx%d", aws.ToInt32(video.Width), aws.ToInt32(video.Height))
	}
	h264 := video.CodecSettings.H264Settings
	if video.CodecSettings.Codec != types.VideoCodecH264 {
		t.Fatalf("unexpected codec %v", video.CodecSettings.Codec)
	}
	if h264.RateControlMode != types.H264RateControlModeQvbr || aws.ToInt32(h264.QvbrSettings.QvbrQualityLevel) != 8 {
		t.Fatalf("expected qvbr level 8, got %v %v", h264.RateControlMode, h264.QvbrSettings)
	}
	if h264.QualityTuningLevel != types.H264QualityTuningLevelMultiPassHq {
		t.Fatalf("expected multi-pass hq, got %v", h264.QualityTuningLevel)
	}

	aac := out.AudioDescriptions[0].CodecSettings.AacSettings
	if aws.ToInt32(aac.Bitrate) != 128_000 || aws.ToInt32(aac.SampleRate) != 48_000 {
		t.Fatalf("unexpected audio settings %v/%v", aws.ToInt32(aac.Bitrate), aws.ToInt32(aac.SampleRate))
	}
}

func TestBuildJobInputQueue(t *testing.T) {
	in := BuildJobInput("arn:role", "arn:queue", defaultProfile, JobSpec{})
	if aws.ToString(in.Queue) != "arn:queue" {
		t.Fatalf("expected queue, got %v", in.Queue)
	}
}

func TestProfileValidate(t *testing.T) {
	if err := defaultProfile.Validate(); err != nil {
		t.Fatalf("default profile: %v", err)
	}
	low := defaultProfile
	low.Width, low.Height = 854, 480
	if err := low.Validate(); err == nil {
		t.Fatal("expected 480p to be rejected")
	}
	bad := defaultProfile
	bad.QualityLevel = 11
	if err := bad.Validate(); err == nil {
		t.Fatal("expected quality 11 to be rejected")
	}
}

func TestSubmit(t *testing.T) {
	api := &fakeAPI{job: &types.Job{Id: aws.String("1700000000000-abc123")}}
	c := &Client{api: api, role: "arn:role", profile: defaultProfile}

	id, err := c.Submit(context.Background(), JobSpec{InputURI: "s3://staging/a.mp4"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id != "1700000000000-abc123" {
		t.Fatalf("unexpected id %q", id)
	}
	if api.created == nil {
		t.Fatal("expected CreateJob to be called")
	}
}

func TestSubmitErrors(t *testing.T) {
	c := &Client{api: &fakeAPI{err: errors.New("throttled")}, profile: defaultProfile}
	if _, err := c.Submit(context.Background(), JobSpec{}); err == nil {
		t.Fatal("expected api error")
	}

	c = &Client{api: &fakeAPI{job: &types.Job{}}, profile: defaultProfile}
	if _, err := c.Submit(context.Background(), JobSpec{}); err == nil {
		t.Fatal("expected missing job id error")
	}
}

func TestJobError(t *testing.T) {
	api := &fakeAPI{job: &types.Job{
		Id:           aws.String("job-1"),
		ErrorCode:    aws.Int32(1030),
		ErrorMessage: aws.String("Unable to open input file"),
	}}
	c := &Client{api: api, profile: defaultProfile}

	jobErr, err := c.JobError(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("job error: %v", err)
	}
	if jobErr.Code != 1030 || jobErr.Message != "Unable to open input file" {
		t.Fatalf("unexpected job error %+v", jobErr)
	}
}
