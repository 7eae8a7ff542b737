package transcode

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert/types"
)

// Output resolution floor. Jobs are never submitted below 720p.
const (
	MinWidth  = 1280
	MinHeight = 720
)

// NameModifier is appended to the source base name by the transcoder.
const NameModifier = "_compressed"

// Profile is the fixed output ladder: a single H.264 QVBR rendition with AAC
// audio in an MP4 container.
type Profile struct {
	QualityLevel int32
	MaxBitrate   int32
	Width        int32
	Height       int32
	AudioBitrate int32
	SampleRate   int32
}

// Validate enforces the resolution floor and QVBR bounds.
func (p Profile) Validate() error {
	if p.Width < MinWidth || p.Height < MinHeight {
		return fmt.Errorf("output %dx%d is below the %dx%d floor", p.Width, p.Height, MinWidth, MinHeight)
	}
	if p.QualityLevel < 1 || p.QualityLevel > 10 {
		return fmt.Errorf("qvbr quality level %d outside 1..10", p.QualityLevel)
	}
	if p.MaxBitrate <= 0 || p.AudioBitrate <= 0 || p.SampleRate <= 0 {
		return errors.New("bitrates and sample rate must be positive")
	}
	return nil
}

// Config configures the MediaConvert client.
type Config struct {
	Region   string
	Endpoint string
	RoleARN  string
	Queue    string
	Profile  Profile
}

// JobSpec describes one submission.
type JobSpec struct {
	InputURI       string
	DestinationURI string
	UserMetadata   map[string]string
}

// JobError is the failure detail recorded on a finished job.
type JobError struct {
	Code    int32
	Message string
}

type api interface {
	CreateJob(ctx context.Context, params *mediaconvert.CreateJobInput, optFns ...func(*mediaconvert.Options)) (*mediaconvert.CreateJobOutput, error)
	GetJob(ctx context.Context, params *mediaconvert.GetJobInput, optFns ...func(*mediaconvert.Options)) (*mediaconvert.GetJobOutput, error)
}

// Client submits and inspects MediaConvert jobs.
type Client struct {
	api     api
	role    string
	queue   string
	profile Profile
}

// New loads the default AWS credential chain and builds a client bound to
// the account-specific MediaConvert endpoint.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Profile.Validate(); err != nil {
		return nil, fmt.Errorf("transcode profile: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	svc := mediaconvert.NewFromConfig(awsCfg, func(o *mediaconvert.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &Client{api: svc, role: cfg.RoleARN, queue: cfg.Queue, profile: cfg.Profile}, nil
}

// Submit creates a job and returns its id.
func (c *Client) Submit(ctx context.Context, spec JobSpec) (string, error) {
	out, err := c.api.CreateJob(ctx, BuildJobInput(c.role, c.queue, c.profile, spec))
	if err != nil {
		return "", fmt.Errorf("create mediaconvert job: %w", err)
	}
	if out.Job == nil || aws.ToString(out.Job.Id) == "" {
		return "", errors.New("create mediaconvert job: response carried no job id")
	}
	return aws.ToString(out.Job.Id), nil
}

// JobError fetches the error code and message of a failed job.
func (c *Client) JobError(ctx context.Context, jobID string) (JobError, error) {
	out, err := c.api.GetJob(ctx, &mediaconvert.GetJobInput{Id: aws.String(jobID)})
	if err != nil {
		return JobError{}, fmt.Errorf("get mediaconvert job %s: %w", jobID, err)
	}
	if out.Job == nil {
		return JobError{}, fmt.Errorf("get mediaconvert job %s: empty response", jobID)
	}
	return JobError{
		Code:    aws.ToInt32(out.Job.ErrorCode),
		Message: aws.ToString(out.Job.ErrorMessage),
	}, nil
}

// BuildJobInput renders the fixed compression profile as a CreateJob request.
func BuildJobInput(role, queue string, p Profile, spec JobSpec) *mediaconvert.CreateJobInput {
	input := &mediaconvert.CreateJobInput{
		Role:         aws.String(role),
		UserMetadata: spec.UserMetadata,
		Settings: &types.JobSettings{
			TimecodeConfig: &types.TimecodeConfig{Source: types.TimecodeSourceZerobased},
			Inputs: []types.Input{{
				FileInput: aws.String(spec.InputURI),
				AudioSelectors: map[string]types.AudioSelector{
					"Audio Selector 1": {DefaultSelection: types.AudioDefaultSelectionDefault},
				},
				VideoSelector:  &types.VideoSelector{},
				TimecodeSource: types.InputTimecodeSourceZerobased,
			}},
			OutputGroups: []types.OutputGroup{{
				Name: aws.String("File Group"),
				OutputGroupSettings: &types.OutputGroupSettings{
					Type: types.OutputGroupTypeFileGroupSettings,
					FileGroupSettings: &types.FileGroupSettings{
						Destination: aws.String(spec.DestinationURI),
					},
				},
				Outputs: []types.Output{{
					NameModifier: aws.String(NameModifier),
					ContainerSettings: &types.ContainerSettings{
						Container:   types.ContainerTypeMp4,
						Mp4Settings: &types.Mp4Settings{},
					},
					VideoDescription: videoDescription(p),
					AudioDescriptions: []types.AudioDescription{{
						AudioSourceName: aws.String("Audio Selector 1"),
						CodecSettings: &types.AudioCodecSettings{
							Codec: types.AudioCodecAac,
							AacSettings: &types.AacSettings{
								Bitrate:    aws.Int32(p.AudioBitrate),
								CodingMode: types.AacCodingModeCodingMode20,
								SampleRate: aws.Int32(p.SampleRate),
							},
						},
					}},
				}},
			}},
		},
	}
	if queue != "" {
		input.Queue = aws.String(queue)
	}
	return input
}

func videoDescription(p Profile) *types.VideoDescription {
	return &types.VideoDescription{
		Width:           aws.Int32(p.Width),
		Height:          aws.Int32(p.Height),
		ScalingBehavior: types.ScalingBehaviorDefault,
		CodecSettings: &types.VideoCodecSettings{
			Codec: types.VideoCodecH264,
			H264Settings: &types.H264Settings{
				RateControlMode:    types.H264RateControlModeQvbr,
				QvbrSettings:       &types.H264QvbrSettings{QvbrQualityLevel: aws.Int32(p.QualityLevel)},
				MaxBitrate:         aws.Int32(p.MaxBitrate),
				QualityTuningLevel: types.H264QualityTuningLevelMultiPassHq,
				CodecProfile:       types.H264CodecProfileHigh,
				SceneChangeDetect:  types.H264SceneChangeDetectTransitionDetection,
			},
		},
	}
}
