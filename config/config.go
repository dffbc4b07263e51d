package config

import (
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"

	"recorder-agent/constant"
	"recorder-agent/dto"
)

type Config struct {
	MinIOBucket string        `yaml:"minio_bucket"`
	App         App           `yaml:"app"`
	Store       Store         `yaml:"store"`
	Queue       *RabbitMQ     `yaml:"rabbitmq"`
	Storage     *minio.Client `yaml:"storage"`
	Server      Server        `yaml:"server"`
	Recorder    Recorder      `yaml:"recorder"`
}

type App struct {
	Environment string `yaml:"environment"`
	WorkspaceId string `yaml:"workspace_id"`
}

type Server struct {
	HttpPort string `yaml:"http_port"`
}

// Store is the local durable chunk store.
type Store struct {
	Path string `yaml:"path"`
}

type RabbitMQ struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	ExchangeName string `json:"exchange_name"`
	Kind         string `json:"kind"`
}

// Recorder holds the default capture config applied when a start request
// does not override it.
type Recorder struct {
	Quality           constant.QualityPreset  `yaml:"quality"`
	WebcamEnabled     bool                    `yaml:"webcam_enabled"`
	WebcamShape       constant.WebcamShape    `yaml:"webcam_shape"`
	WebcamPosition    constant.WebcamPosition `yaml:"webcam_position"`
	MicEnabled        bool                    `yaml:"mic_enabled"`
	UseFloatingWindow bool                    `yaml:"use_floating_window"`
}

func (r Recorder) DefaultConfig() dto.RecorderConfig {
	return dto.RecorderConfig{
		CaptureSource:     constant.CaptureSourceScreen,
		Quality:           r.Quality,
		WebcamEnabled:     r.WebcamEnabled,
		WebcamPosition:    r.WebcamPosition,
		WebcamShape:       r.WebcamShape,
		MicEnabled:        r.MicEnabled,
		UseFloatingWindow: r.UseFloatingWindow,
	}
}

func Load(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	viper.SetDefault("store.path", "data/recordings.db")
	viper.SetDefault("recorder.quality", string(constant.Quality1080p))
	viper.SetDefault("recorder.webcam_shape", string(constant.WebcamShapeCircle))
	viper.SetDefault("recorder.webcam_position", string(constant.WebcamPositionBottomRight))

	rabbitmq := &RabbitMQ{
		Host:         viper.GetString("rabbitmq_host"),
		Port:         viper.GetInt("rabbitmq_port"),
		User:         viper.GetString("rabbitmq_user"),
		Pass:         viper.GetString("rabbitmq_pass"),
		ExchangeName: viper.GetString("rabbitmq_exchange"),
		Kind:         viper.GetString("rabbitmq_kind"),
	}

	minioClient, err := minio.New(viper.GetString("minio.url"), &minio.Options{
		Creds:  credentials.NewStaticV4(viper.GetString("minio.access_id"), viper.GetString("minio.secret_access_key"), ""),
		Secure: false,
	})
	if err != nil {
		return nil, err
	}

	return &Config{
		MinIOBucket: viper.GetString("minio.bucket"),
		App: App{
			Environment: viper.GetString("app.environment"),
			WorkspaceId: viper.GetString("app.workspace_id"),
		},
		Server: Server{
			HttpPort: viper.GetString("server.port"),
		},
		Store: Store{
			Path: viper.GetString("store.path"),
		},
		Recorder: Recorder{
			Quality:           constant.QualityPreset(viper.GetString("recorder.quality")),
			WebcamEnabled:     viper.GetBool("recorder.webcam_enabled"),
			WebcamShape:       constant.WebcamShape(viper.GetString("recorder.webcam_shape")),
			WebcamPosition:    constant.WebcamPosition(viper.GetString("recorder.webcam_position")),
			MicEnabled:        viper.GetBool("recorder.mic_enabled"),
			UseFloatingWindow: viper.GetBool("recorder.use_floating_window"),
		},
		Queue:   rabbitmq,
		Storage: minioClient,
	}, nil
}
