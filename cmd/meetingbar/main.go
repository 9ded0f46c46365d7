package main

import "github.com/leits/MeetingBar-sub001/cmd/meetingbar/cmd"

func main() {
	cmd.Execute()
}
